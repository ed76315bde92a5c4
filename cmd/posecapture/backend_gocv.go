//go:build gocv

package main

import (
	"github.com/banshee-data/posecapture/internal/config"
	"github.com/banshee-data/posecapture/internal/framesource"
)

func init() {
	backends["gocv"] = func(*config.SessionConfig) framesource.Opener {
		return framesource.GoCVOpener{}
	}
}

package web

import (
	"embed"
)

// staticFiles holds the control page and its script.
//
//go:embed static/*
var staticFiles embed.FS

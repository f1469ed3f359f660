// Package web embeds the icons served under /img.
package web

import "embed"

//go:embed img
var Assets embed.FS

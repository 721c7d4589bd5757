// Package stitchray holds build metadata for the stitchray command.
package stitchray

// Version is the release version reported by the CLI.
const Version = "0.3.0"

// Package viz renders driver output for terminals.
//
//   - [Plot]: asciigraph line chart of checkpoint values
//   - [Summary]: lipgloss table of checkpoints
//   - [WatchModel]: Bubble Tea program that advances a session live
//   - [Canvas]: Braille pixel canvas used to draw replica structures
//
// # Key Bindings
//
//	Space - Pause/Resume advancing
//	S     - Shuffle structures between replicas
//	Q     - Quit
package viz

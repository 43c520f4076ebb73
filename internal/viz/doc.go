// Package viz draws robot scenes and task error summaries for the terminal.
//
//   - [Canvas]: Braille pixel canvas, 2x4 dots per cell
//   - [Scene]: projects every robot's link chain onto a plane of the canvas
//   - [TaskTable]: per-task error, trend sparkline and weight
//
// Colors come from the current [Theme]; [SetTheme] switches it globally.
package viz

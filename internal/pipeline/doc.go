// Package pipeline post-processes HTML around exported notebooks.
//
// It covers two stages that run outside the external exporter:
//   - rendering notebook source as highlighted HTML via Goldmark, used by
//     placeholder pages when the export failed
//   - injecting gallery launch buttons into pages already rendered by the
//     documentation renderer
package pipeline

// Package daemon keeps a project's tool artifacts in sync while it runs.
//
// A Watcher subscribes to filesystem notifications for one project root,
// classifies each event (see Class) and coalesces bursts within the debounce
// window into one sync pass. Passes for a project never overlap: a trigger
// that arrives while a pass is running is held in a one-slot queue and starts
// exactly one fresh pass when the current one finishes.
//
// Watched paths are every tool artifact and detection candidate in the
// registry, the canonical rules directory, common dependency manifests and
// any configured extra globs. Build output and VCS directories are skipped
// (see package ignore).
//
// Event handling:
//
//   - tool-artifact-removed is logged only. A removed artifact is never
//     recreated by the watcher.
//   - manifest-changed is logged and passed to Options.OnManifest.
//   - tool-artifact-changed, tool-artifact-added and canonical-rule-changed
//     start a pass when auto-sync is enabled and are logged otherwise.
//
// Watcher passes never create missing artifacts. With auto-sync enabled they
// fold external artifact edits back into the canonical rules first.
//
// Manager tracks at most one watcher per absolute root for the whole process;
// StartWatching and StopWatching operate on the default Manager.
package daemon

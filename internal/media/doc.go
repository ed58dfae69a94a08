// Package media hosts the external-tool boundaries of the pipeline and the
// error markers shared by them. Each subpackage wraps one tool family
// (ffprobe, ffmpeg/mkvmerge, the scene-change detector, quality scorers)
// behind a small client type whose process launches route through a
// package-level commandContext variable so tests can substitute helper
// processes.
package media

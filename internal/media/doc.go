// Package media reads duration, stream parameters and tags from audio files.
//
// WAV is decoded with go-audio/wav, FLAC with tphakala/flac and MP3 tags with
// bogem/id3v2. MIDI and Ogg files are reported as needing conversion before an
// external player can handle them; their duration is left unknown.
package media

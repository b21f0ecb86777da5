// Package watcher reports changes under a dataset directory.
//
// Every directory below the root is watched with fsnotify. Events for audio
// files and directories are collected until the debounce window passes
// without new events, then handed to the handler as one batch.
package watcher

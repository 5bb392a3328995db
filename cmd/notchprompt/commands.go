package main

import "fmt"

// ==============================
// Commands (side effects)
// ==============================

// Command represents an external side effect to be executed by the daemon loop.
// Here those are file I/O and replies to snapshot requests.
type Command interface {
	commandMarker()
	String() string
}

// CmdLoadScript reads a script file and reports ScriptLoaded.
type CmdLoadScript struct {
	Path string
}

func (CmdLoadScript) commandMarker() {}
func (c CmdLoadScript) String() string {
	return fmt.Sprintf("CmdLoadScript(path=%q)", c.Path)
}

// CmdWatchScript points the file watcher at Path. An empty Path stops watching.
type CmdWatchScript struct {
	Path string
}

func (CmdWatchScript) commandMarker() {}
func (c CmdWatchScript) String() string {
	return fmt.Sprintf("CmdWatchScript(path=%q)", c.Path)
}

// CmdExportScript writes Text to Path.
type CmdExportScript struct {
	Path string
	Text string
}

func (CmdExportScript) commandMarker() {}
func (c CmdExportScript) String() string {
	return fmt.Sprintf("CmdExportScript(path=%q, bytes=%d)", c.Path, len(c.Text))
}

// CmdPublishStateSnapshot delivers a snapshot to a requester.
type CmdPublishStateSnapshot struct {
	Reply    chan StateSnapshot
	Snapshot StateSnapshot
}

func (CmdPublishStateSnapshot) commandMarker() {}
func (CmdPublishStateSnapshot) String() string { return "CmdPublishStateSnapshot()" }

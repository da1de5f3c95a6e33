// Package pipeline walks one feed item through the ingestion state
// machine: resolve, dedupe, existence probe, download, probe, extract,
// stage, import, wait for transcoding, write metadata, clean up.
//
// Every state transition is journaled; each state has one normal successor
// and one failure edge funneling to cleanup. The orchestrator is the sole
// decider of an item's terminal outcome.
package pipeline

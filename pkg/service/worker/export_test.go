package worker

// Seed is exported for testing
var Seed = (*ClipboardIngestWorker).seed

// Poll is exported for testing
var Poll = (*ClipboardIngestWorker).poll

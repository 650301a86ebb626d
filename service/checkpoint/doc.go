// Package checkpoint defines the pluggable snapshot store used for resumable
// epic execution.  The memory implementation serves tests and single-process
// embedding; production deployments require the durable fs store (or an
// equivalent implementation) – without durable checkpointing, resume after a
// crash and multi-process coordination are unavailable.
package checkpoint

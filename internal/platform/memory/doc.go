// Package memory provides an in-process implementation of store.QueueStore.
// It suits tests and single-process deployments where tasks need not
// survive a restart.
package memory

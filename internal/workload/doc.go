// Package workload defines the common interface implemented by every
// benchmark in the suite, the parameter bag used to configure them, and the
// registry that resolves benchmark names to factories.
package workload

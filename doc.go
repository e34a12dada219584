// Package cgcnn holds the shared data model for training graph-network
// potentials on atomic-structure data and relaxing batches of structures with
// them: the AtomicSystem structure, the flat Batch representation that packs
// many systems into one set of tensors, and the TLV wire codec used for
// stored samples and trajectory frames.
//
// The subpackages build on it: dataset indexes samples sharded over many
// read-only key-value stores, relax runs the batched L-BFGS relaxation, eval
// accumulates per-task accuracy metrics, tensor provides the segmented
// reductions both of them lean on.
package cgcnn

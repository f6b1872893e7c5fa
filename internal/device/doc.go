// Package device provides the accelerator abstraction the pair evaluators run on.
//
// The package emulates a compute device on the host CPU:
//
//   - [Device]: accounted device memory, block size and worker properties
//   - [Buffer]: typed allocate-once / clear-once device memory
//   - [HostVec]: host staging memory for uploads
//   - [Kernel]: a 1-D grid of blocks launched on the device [Stream]
//   - [Timer]: stream-ordered elapsed time between two markers
//
// # Launch model
//
// Kernels are launched asynchronously. A launch only validates its grid and
// block configuration; execution errors surface at the next
// [Device.Synchronize]:
//
//	k := device.NewKernel(dev, "kernel_pair", fn)
//	k.SetSize(grid, block)
//	if err := k.Run(args); err != nil {
//		return err
//	}
//	err := dev.Synchronize()
//
// Blocks run in parallel on up to Properties.Workers goroutines. Threads of a
// block run sequentially inside the block function, so block-local arrays
// behave like on-chip shared memory.
package device

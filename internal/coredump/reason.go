package coredump

// Reason is the fatal error class reported by the kernel.
type Reason int

const (
	ReasonCPUException Reason = iota
	ReasonSpuriousIRQ
	ReasonStackCheckFail
	ReasonKernelOops
	ReasonKernelPanic
	ReasonUnknown
)

// ReasonFromCode maps a raw reason code to a Reason. Codes outside the
// known set become ReasonUnknown.
func ReasonFromCode(code uint32) Reason {
	if code <= uint32(ReasonKernelPanic) {
		return Reason(code)
	}
	return ReasonUnknown
}

func (r Reason) String() string {
	switch r {
	case ReasonCPUException:
		return "CPU exception"
	case ReasonSpuriousIRQ:
		return "spurious interrupt"
	case ReasonStackCheckFail:
		return "stack check failure"
	case ReasonKernelOops:
		return "kernel oops"
	case ReasonKernelPanic:
		return "kernel panic"
	default:
		return "unknown"
	}
}

// Symbol returns the kernel constant name, e.g. K_ERR_CPU_EXCEPTION.
func (r Reason) Symbol() string {
	switch r {
	case ReasonCPUException:
		return "K_ERR_CPU_EXCEPTION"
	case ReasonSpuriousIRQ:
		return "K_ERR_SPURIOUS_IRQ"
	case ReasonStackCheckFail:
		return "K_ERR_STACK_CHK_FAIL"
	case ReasonKernelOops:
		return "K_ERR_KERNEL_OOPS"
	case ReasonKernelPanic:
		return "K_ERR_KERNEL_PANIC"
	default:
		return "UNKNOWN"
	}
}

package nvme

import (
	"unsafe"

	"github.com/embodios/kernel/internal/config"
)

// addrOf returns buf's backing address, standing in for the physical
// address a real driver would get from a DMA mapping.
func addrOf(buf []byte) uintptr {
	if len(buf) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&buf[0]))
}

// BuildPRP computes (prp1, prp2) for a transfer of length bytes starting at
// addr, following the standard PRP setup rules. prp1 is always addr itself.
//
//   - length fits within the current page from addr: prp2 = 0.
//   - length spans exactly two pages: prp2 is the second page's base.
//   - otherwise: prp2 points at a prebuilt PRP list (returned as list),
//     whose entry i is addr's page base + (i+1) pages; capped at
//     config.NVMePRPListMax entries.
func BuildPRP(addr uintptr, length int) (prp1, prp2 uintptr, list []uintptr) {
	const pageSize = config.PageSize
	prp1 = addr
	firstPageRemaining := pageSize - int(addr%pageSize)
	if length <= firstPageRemaining {
		return prp1, 0, nil
	}
	pageBase := addr - addr%pageSize
	if length <= firstPageRemaining+pageSize {
		return prp1, pageBase + pageSize, nil
	}
	remaining := length - firstPageRemaining
	nPages := (remaining + pageSize - 1) / pageSize
	if nPages > config.NVMePRPListMax {
		nPages = config.NVMePRPListMax
	}
	list = make([]uintptr, nPages)
	for i := 0; i < nPages; i++ {
		list[i] = pageBase + uintptr(i+1)*pageSize
	}
	return prp1, uintptr(unsafe.Pointer(&list[0])), list
}

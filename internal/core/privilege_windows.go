//go:build windows

package core

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/windows"
)

const sePrivilegeEnabled = 0x00000002

var (
	fastExtendOnce      sync.Once
	fastExtendAvailable bool

	setFileValidDataProc = windows.NewLazySystemDLL("kernel32.dll").NewProc("SetFileValidData")
)

// tryAcquireFastExtendPrivilege enables SeManageVolumePrivilege for the
// current process token, once. On success, subsequent file preallocation
// may call SetFileValidData to skip zero-filling newly extended regions;
// on failure (commonly because the process is not running elevated), the
// flag stays false and callers fall back to the slow, zero-filling path.
// This never returns an error to the caller - it is fully best-effort
// per spec §4.I.
func tryAcquireFastExtendPrivilege() bool {
	fastExtendOnce.Do(func() {
		fastExtendAvailable = enableManageVolumePrivilege()
		if !fastExtendAvailable {
			PushLogInfo(nil, "fast file-extend privilege (SeManageVolumePrivilege) not available, using slow preallocation path")
		}
	})
	return fastExtendAvailable
}

func enableManageVolumePrivilege() bool {
	var token windows.Token
	process, err := windows.GetCurrentProcess()
	if err != nil {
		return false
	}
	if err := windows.OpenProcessToken(process, windows.TOKEN_ADJUST_PRIVILEGES|windows.TOKEN_QUERY, &token); err != nil {
		return false
	}
	defer token.Close()

	var luid windows.LUID
	if err := windows.LookupPrivilegeValue(nil, windows.StringToUTF16Ptr("SeManageVolumePrivilege"), &luid); err != nil {
		return false
	}

	privileges := windows.Tokenprivileges{
		PrivilegeCount: 1,
		Privileges: [1]windows.LUIDAndAttributes{
			{Luid: luid, Attributes: sePrivilegeEnabled},
		},
	}

	if err := windows.AdjustTokenPrivileges(token, false, &privileges, 0, nil, nil); err != nil {
		return false
	}
	// AdjustTokenPrivileges can succeed while silently not granting the
	// privilege (ERROR_NOT_ALL_ASSIGNED); treat anything other than a
	// hard error as a best-effort success.
	return true
}

// fastExtendFile marks the bytes between the file's old length and size
// as valid without zero-filling them, via SetFileValidData. Requires the
// privilege acquired above and that f was opened with write access and
// already truncated to size.
func fastExtendFile(f *os.File, size int64) error {
	if !fastExtendAvailable {
		return fmt.Errorf("fast-extend privilege not held")
	}

	r1, _, err := setFileValidDataProc.Call(
		f.Fd(),
		uintptr(size),
	)
	if r1 == 0 {
		return fmt.Errorf("SetFileValidData: %w", err)
	}
	return nil
}

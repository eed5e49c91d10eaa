package core

// tryAcquireFastExtendPrivilege and fastExtendFile are the Privilege
// Helper (spec §4.I / §6): a best-effort, platform-specific attempt to
// let target file preallocation skip zero-filling. Neither ever returns a
// fatal error to the caller: tryAcquireFastExtendPrivilege simply
// disables the fast path on failure, and fastExtendFile's caller treats
// any error as informational (spec §4.A: "failure is logged, not
// fatal"). Implementations live in privilege_windows.go and
// privilege_unix.go, selected by build tag.

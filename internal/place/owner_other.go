//go:build !unix

package place

// 非 unix 平台没有 uid/gid 可复制。
func copyOwner(root string, dirs ...string) {}

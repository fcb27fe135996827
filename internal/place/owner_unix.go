//go:build unix

package place

import (
	"os"
	"syscall"

	"github.com/sirupsen/logrus"
)

// copyOwner 把 root 的 uid/gid 复制到新建的各级目录上。
// 任何一步失败只记 debug，不影响主流程。
func copyOwner(root string, dirs ...string) {
	fi, err := os.Stat(root)
	if err != nil {
		return
	}
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return
	}
	for _, d := range dirs {
		if err := os.Chown(d, int(st.Uid), int(st.Gid)); err != nil {
			logrus.WithField("dir", d).WithError(err).Debug("复制目录属主失败")
		}
	}
}

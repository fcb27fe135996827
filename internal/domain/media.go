package domain

// Kind 是按文件内容（MIME）判定的媒体类别。
type Kind int

const (
	KindUnsupported Kind = iota
	KindImage
	KindVideo
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	default:
		return "unsupported"
	}
}

// MediaFile 描述一次扫描得到的媒体文件（只做 stat，不读内容）。
//
// 不变量（实现必须遵守）：
// - AbsPath 必须是 clean + absolute
// - 扫描阶段只做 stat，不读文件内容
//
// 两条流水线对 MediaFile 的“时间权威”不同，且不得混用：
// - repair：文件名是唯一权威（绝不读元数据来决定写什么）
// - move：元数据（或 mtime 兜底）是唯一权威（绝不相信文件名）
type MediaFile struct {
	AbsPath string
	RelPath string
	Base    string // filename without ext
	Ext     string // ".jpg"（已转小写）
	Size    int64
	ModUnix int64
}

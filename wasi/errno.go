package wasi

// Errno is the fixed error-code enumeration of the bridge ABI. Values
// follow the WASI preview1 numbering.
type Errno uint16

const (
	ErrnoSuccess Errno = 0
	ErrnoAcces   Errno = 2
	ErrnoAgain   Errno = 6
	ErrnoBadf    Errno = 8
	ErrnoExist   Errno = 20
	ErrnoInval   Errno = 28
	ErrnoIO      Errno = 29
	ErrnoIsdir   Errno = 31
	ErrnoNoent   Errno = 44
	ErrnoNotdir  Errno = 54
	ErrnoPerm    Errno = 63
)

func (e Errno) String() string {
	switch e {
	case ErrnoSuccess:
		return "SUCCESS"
	case ErrnoAcces:
		return "ACCES"
	case ErrnoAgain:
		return "AGAIN"
	case ErrnoBadf:
		return "BADF"
	case ErrnoExist:
		return "EXIST"
	case ErrnoInval:
		return "INVAL"
	case ErrnoIO:
		return "IO"
	case ErrnoIsdir:
		return "ISDIR"
	case ErrnoNoent:
		return "NOENT"
	case ErrnoNotdir:
		return "NOTDIR"
	case ErrnoPerm:
		return "PERM"
	default:
		return "ERRNO(?)"
	}
}

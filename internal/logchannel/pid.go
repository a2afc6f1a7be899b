package logchannel

import "os"

func pid() int { return os.Getpid() }

package logging

import (
	"log"
	"os"
)

var (
	Internal = log.New(os.Stdout, "[internal] ", log.LstdFlags)
	HTTP     = log.New(os.Stdout, "[http] ", log.LstdFlags)
	Store    = log.New(os.Stdout, "[store] ", log.LstdFlags)
	Upstream = log.New(os.Stdout, "[upstream] ", log.LstdFlags)
	S3       = log.New(os.Stdout, "[s3] ", log.LstdFlags)
	Quota    = log.New(os.Stdout, "[quota] ", log.LstdFlags)
)

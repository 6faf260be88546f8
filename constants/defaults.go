package constants

import "time"

const (
	Title = "Minimal RETR-only file transfer server"

	FRAME_SIZE          = 512             // Max bytes per command line, reply and payload chunk
	CMD_LEN             = 4               // Every verb is exactly four characters
	PARAM_SIZE          = 100             // Longest accepted command argument
	DEFAULT_PORT        = 2121            // Unprivileged default for the client
	DEFAULT_LISTEN      = "0.0.0.0"       // Bind address
	DEFAULT_SERVER_NAME = "srvFtp"        // Advertised in the 220 greeting
	DEFAULT_VERSION     = "1.0"           // Advertised in the 220 greeting
	DEFAULT_USERS_FILE  = "./ftpusers"    // user:password records
	DEFAULT_ROOT        = "."             // Directory RETR paths resolve against
	DEFAULT_SESSIONS    = 1               // Sessions served at once; 1 is strictly sequential
	DEFAULT_DSCP        = 0               // QoS marking for control connections
	DEFAULT_IDLE        = 5 * time.Minute // Per read/write deadline
	ARCHIVE_SUFFIX      = ".lz4"          // Compressed sidecar served when the plain file is absent
)

package replycode

const (
	FILE_SIZE         = 299 // Size announcement preceding a RETR payload
	SERVICE_READY     = 220 // Server greeting
	GOODBYE           = 221 // QUIT acknowledged
	TRANSFER_COMPLETE = 226 // RETR payload fully sent
	LOGGED_IN         = 230 // Credentials accepted
	PASS_REQUIRED     = 331 // USER accepted, PASS expected
	LOGIN_INCORRECT   = 530 // Credentials rejected
	NO_SUCH_FILE      = 550 // RETR target missing
)

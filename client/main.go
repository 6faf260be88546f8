package main

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/akamensky/argparse"

	"go_mini_ftp/client/comms"
	"go_mini_ftp/constants"
	"go_mini_ftp/fileio"
)

func main() {
	args := argparse.NewParser("client", constants.Title)

	bind := args.String("a", "address", &argparse.Options{Required: true, Help: "Target host address"})
	dscp := args.Int("d", "dscp", &argparse.Options{Required: false, Help: "DSCP field for QoS",
		Default: constants.DEFAULT_DSCP})
	file := args.String("f", "file", &argparse.Options{Required: true, Help: "Remote file path"})
	pass := args.String("k", "key", &argparse.Options{Required: false, Help: "Password"})
	out := args.String("o", "output", &argparse.Options{Required: false, Help: "Local file to write, defaults to the remote base name"})
	port := args.String("p", "port", &argparse.Options{Required: false, Help: "Target port",
		Default: strconv.Itoa(constants.DEFAULT_PORT)})
	sha := args.Flag("s", "sha", &argparse.Options{Help: "Use SHA256 checksum instead of CRC32"})
	timeout := args.String("t", "timeout", &argparse.Options{Required: false, Help: "Network timeout",
		Default: "30s"})
	user := args.String("u", "user", &argparse.Options{Required: true, Help: "User name"})
	compress := args.Flag("z", "compress", &argparse.Options{Help: "Store the download lz4 compressed"})

	err := args.Parse(os.Args)

	if err != nil {
		fmt.Print(args.Usage(err))
		os.Exit(1)
	}

	wait, err := time.ParseDuration(*timeout)
	if err != nil {
		fmt.Print(args.Usage(err))
		os.Exit(1)
	}

	local := *out
	if local == "" {
		local = path.Base(*file)
		if *compress {
			local += constants.ARCHIVE_SUFFIX
		}
	}

	addr := net.JoinHostPort(*bind, *port)

	client, err := comms.Dial(addr, *dscp, wait)
	if err != nil {
		fmt.Println(err.Error())
		os.Exit(1)
	}
	defer client.Close()
	fmt.Println("Connected to", addr)

	greeting, err := client.Greeting()
	if err != nil {
		fmt.Println(err.Error())
		os.Exit(1)
	}
	fmt.Println(greeting.Text)

	if err := client.Login(*user, *pass); err != nil {
		fmt.Println(err.Error())
		os.Exit(1)
	}
	fmt.Println("Logged in as", *user)

	writer, err := fileio.NewBufferedWriter(local, constants.FRAME_SIZE*64, *compress, *sha)
	if err != nil {
		fmt.Println(err.Error())
		os.Exit(1)
	}

	begin := time.Now()
	n, err := client.Retrieve(*file, writer)
	closeErr := writer.Close()

	if err != nil {
		os.Remove(local)
		fmt.Println(err.Error())
		if errors.Is(err, comms.ErrNoSuchFile) {
			client.Quit()
		}
		os.Exit(2)
	}
	if closeErr != nil {
		fmt.Println(closeErr.Error())
		os.Exit(1)
	}

	fmt.Println("Received", n, "bytes in", time.Since(begin), "to", local)
	fmt.Println("Checksum", hex.EncodeToString(writer.Sum()))

	// Compressed output hashes differently on disk; only plain files are re-read.
	if !*compress {
		onDisk, err := fileio.FileChecksum(local, *sha)
		if err != nil {
			fmt.Println(err.Error())
			os.Exit(1)
		}
		if !bytes.Equal(onDisk, writer.Sum()) {
			fmt.Println("Checksum mismatch! Local file may be corrupted")
			os.Exit(2)
		}
		fmt.Println("Local file checksum verified")
	}

	if err := client.Quit(); err != nil {
		fmt.Println(err.Error())
	}
	fmt.Println("Disconnected")
}

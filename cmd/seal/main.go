// Command seal encrypts a connection credential read from stdin with SECRET_KEY so it can be
// stored in the connections table.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	config "github.com/maheshrc27/post-dispatch/configs"
	"github.com/maheshrc27/post-dispatch/pkg/utils"
)

var errEmptyInput = errors.New("nothing to seal on stdin")

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()
	sealed, err := seal(os.Stdin, cfg.SecretKey)
	if err != nil {
		log.Fatalf("seal: %v", err)
	}
	fmt.Println(sealed)
}

// seal encrypts the first line of r.
func seal(r io.Reader, secretKey string) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", errEmptyInput
	}
	return utils.Encrypt([]byte(line), []byte(secretKey))
}

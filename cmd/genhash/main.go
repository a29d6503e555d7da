package main

import (
	"flag"
	"fmt"
	"os"
	"regexp"

	"golang.org/x/crypto/bcrypt"
)

var pinPattern = regexp.MustCompile(`^\d{4}$`)

func main() {
	pin := flag.String("pin", "", "4 digit wallet PIN to hash")
	flag.Parse()
	if !pinPattern.MatchString(*pin) {
		fmt.Fprintln(os.Stderr, "usage: genhash -pin 1234")
		os.Exit(2)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(*pin), bcrypt.DefaultCost)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("PIN: %s\nHash: %s\n", *pin, string(hash))
}

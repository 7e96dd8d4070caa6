package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/gestaozabele/receitas/internal/auth"
	"github.com/gestaozabele/receitas/internal/util"
)

// hashpass imprime o hash argon2id de uma senha para seeds de usuários.
// Sem argumento, lê a senha da entrada padrão.
func main() {
	password, err := readPassword()
	if err != nil {
		fmt.Fprintln(os.Stderr, "usage: hashpass <password>  (ou via stdin)")
		os.Exit(1)
	}

	if err := util.ValidatePassword(password); err != nil {
		fmt.Fprintf(os.Stderr, "senha rejeitada: %v\n", err)
		os.Exit(1)
	}

	hash, err := auth.Hash(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hash error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(hash)
}

func readPassword() (string, error) {
	if len(os.Args) >= 2 {
		return os.Args[1], nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("senha ausente: %w", err)
	}
	return line, nil
}

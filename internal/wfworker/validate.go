package wfworker

import (
	"strings"

	"weaveforge/internal/wferrors"
)

// shellMetacharacters are rejected in any argv element: since Command is
// always invoked in array form, none of these has special meaning to the
// child process, which means their presence in a target definition is
// either a mistake carried over from a shell-string world or an attempt to
// smuggle shell behavior into something that no longer has a shell to
// interpret it.
const shellMetacharacters = ";&|`$(){}<>*?~!"

// ValidateCommand rejects unsafe argv elements before exec: null bytes,
// embedded newlines, shell metacharacters, and path-traversal segments.
func ValidateCommand(argv []string) error {
	for _, arg := range argv {
		if strings.ContainsRune(arg, 0) {
			return &wferrors.SecurityError{Code: wferrors.UnsafeArgument, Msg: "embedded null byte in argument"}
		}
		if strings.ContainsAny(arg, "\n\r") {
			return &wferrors.SecurityError{Code: wferrors.UnsafeArgument, Msg: "embedded newline in argument"}
		}
		if strings.ContainsAny(arg, shellMetacharacters) {
			return &wferrors.SecurityError{Code: wferrors.UnsafeArgument, Msg: "shell metacharacter in argument: " + arg}
		}
		for _, seg := range strings.Split(arg, "/") {
			if seg == ".." {
				return &wferrors.SecurityError{Code: wferrors.PathEscape, Msg: "path traversal segment in argument: " + arg}
			}
		}
	}
	return nil
}

// ValidatePath rejects a declared source/output path that escapes the
// workspace root via ".." traversal or an absolute path.
func ValidatePath(path string) error {
	if strings.HasPrefix(path, "/") {
		return &wferrors.SecurityError{Code: wferrors.PathEscape, Msg: "absolute path not allowed: " + path}
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == ".." {
			return &wferrors.SecurityError{Code: wferrors.PathEscape, Msg: "path traversal segment in: " + path}
		}
	}
	return nil
}

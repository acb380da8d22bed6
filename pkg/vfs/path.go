package vfs

import (
	"path"
	"strings"

	"github.com/marmos91/homefs/pkg/fserr"
	"github.com/marmos91/homefs/pkg/store/content"
)

// HomeOf returns the logical home directory of user, without trailing slash.
func HomeOf(user string) string {
	return HomePrefix + user
}

// LogicalPath returns the logical path of name inside owner's home.
func LogicalPath(owner, name string) string {
	return HomeOf(owner) + "/" + name
}

// scope cleans p and checks that it names a file directly inside user's home.
//
// Returns the cleaned logical path and the base name, AccessDenied when the path
// escapes the home, or InvalidArgument when the remainder is not a single
// visible name.
func scope(user, p string) (string, string, error) {
	if p == "" {
		return "", "", fserr.New(fserr.CodeInvalidArgument, "path is required", "")
	}

	cleaned := path.Clean(p)
	home := HomeOf(user)

	if cleaned == home {
		return "", "", fserr.New(fserr.CodeInvalidArgument, "path names the home directory", cleaned)
	}
	if !strings.HasPrefix(cleaned, home+"/") {
		return "", "", fserr.New(fserr.CodeAccessDenied, "path is outside your home directory", cleaned)
	}

	name := strings.TrimPrefix(cleaned, home+"/")
	if err := content.ValidateID(content.ID{Owner: user, Name: name}); err != nil {
		return "", "", fserr.Wrap(fserr.CodeInvalidArgument, err, "invalid file name", cleaned)
	}
	return cleaned, name, nil
}

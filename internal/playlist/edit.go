package playlist

import (
	"strconv"
	"strings"

	"github.com/codedghost/twitch-songbot/internal/localdb"
)

// resolveEdit maps a free-text edit command onto exactly one of the
// caller's queued requests and the replacement text. The precedence is
// a fixed cascade:
//
//  1. caller owns nothing anywhere -> ErrNoRequestInList
//  2. a leading non-zero integer is consumed as a vip position index
//  3. empty remaining text -> ErrNoRequestProvided
//  4. exactly one owned request -> edit it, index ignored
//  5. explicit index -> resolve against the vip ordering; the addressed
//     slot must be the caller's
//  6. an owned regular request -> edit it
//  7. exactly one owned vip request -> edit it; more than one without an
//     index is ambiguous
func resolveEdit(username, command string, regular, vip []localdb.SongRequest) (int64, string, error) {
	ownedRegular := ownedBy(regular, username)
	ownedVip := ownedBy(vip, username)

	if len(ownedRegular) == 0 && len(ownedVip) == 0 {
		return 0, "", ErrNoRequestInList
	}

	tokens := strings.Fields(command)
	index := 0
	if len(tokens) > 0 {
		if n, err := strconv.Atoi(tokens[0]); err == nil && n != 0 {
			index = n
			tokens = tokens[1:]
		}
	}
	text := strings.Join(tokens, " ")
	if text == "" {
		return 0, "", ErrNoRequestProvided
	}

	if len(ownedRegular)+len(ownedVip) == 1 {
		if len(ownedRegular) == 1 {
			return ownedRegular[0].ID, text, nil
		}
		return ownedVip[0].ID, text, nil
	}

	if index != 0 {
		if len(ownedVip) == 0 {
			return 0, "", ErrArgument
		}
		if index < 1 || index > len(vip) {
			return 0, "", ErrArgument
		}
		addressed := vip[index-1]
		if addressed.Username != username {
			return 0, "", ErrArgument
		}
		return addressed.ID, text, nil
	}

	if len(ownedRegular) > 0 {
		return ownedRegular[0].ID, text, nil
	}

	if len(ownedVip) == 1 {
		return ownedVip[0].ID, text, nil
	}

	return 0, "", ErrArgument
}

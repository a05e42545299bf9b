package wire

import (
	"errors"
	"fmt"
	"io"

	"github.com/crawlpoint/connector/internal/logger"
	"github.com/crawlpoint/connector/pkg/acl"
	"github.com/crawlpoint/connector/pkg/docid"
)

// WriteAuthzQuery emits an authorization query for an external authorizer:
// the identity, then an id-list closed by a double delimiter.
func WriteAuthzQuery(w io.Writer, delim []byte, id acl.Identity, ids []docid.DocID) error {
	sw, err := NewWriter(w, delim)
	if err != nil {
		return err
	}
	if !id.Anonymous() {
		if err := sw.CommandArg(cmdUsername, id.User.Name); err != nil {
			return err
		}
	}
	if id.Password != "" {
		if err := sw.CommandArg(cmdPassword, id.Password); err != nil {
			return err
		}
	}
	for _, g := range id.Groups {
		if err := sw.CommandArg(cmdGroup, g.Name); err != nil {
			return err
		}
	}
	if err := sw.Command(cmdIDList); err != nil {
		return err
	}
	for _, d := range ids {
		if err := sw.CommandArg(cmdID, string(d)); err != nil {
			return err
		}
	}
	return sw.EndList()
}

// ReadAuthzQuery parses a query on the external-authorizer side.
func ReadAuthzQuery(r io.Reader) (acl.Identity, []docid.DocID, error) {
	sc, err := NewScanner(r)
	if err != nil {
		return acl.Identity{}, nil, err
	}

	var (
		id     acl.Identity
		ids    []docid.DocID
		inList bool
	)
	for {
		cmd, err := sc.Next()
		if errors.Is(err, io.EOF) || errors.Is(err, ErrEndOfList) {
			return id, ids, nil
		}
		if err != nil {
			return acl.Identity{}, nil, err
		}

		switch cmd.Name {
		case cmdUsername:
			u, err := acl.NewUser(cmd.Arg)
			if err != nil {
				return acl.Identity{}, nil, fmt.Errorf("%w: %v", ErrMalformedStream, err)
			}
			id.User = u
		case cmdPassword:
			id.Password = cmd.Arg
		case cmdGroup:
			g, err := acl.NewGroup(cmd.Arg)
			if err != nil {
				return acl.Identity{}, nil, fmt.Errorf("%w: %v", ErrMalformedStream, err)
			}
			id.Groups = append(id.Groups, g)
		case cmdIDList:
			inList = true
		case cmdID:
			if !inList {
				return acl.Identity{}, nil, fmt.Errorf("%w: id outside id-list", ErrMalformedStream)
			}
			ids = append(ids, docid.DocID(cmd.Arg))
		default:
			logger.Warn("Skipping unknown authz query command", "command", cmd.Name)
		}
	}
}

// WriteAuthzResponse emits per-identifier decisions as adjacent
// id / authz-status pairs.
func WriteAuthzResponse(w io.Writer, delim []byte, ids []docid.DocID, decisions map[docid.DocID]acl.Decision) error {
	sw, err := NewWriter(w, delim)
	if err != nil {
		return err
	}
	for _, d := range ids {
		if err := sw.CommandArg(cmdID, string(d)); err != nil {
			return err
		}
		if err := sw.CommandArg(cmdAuthzStatus, decisions[d].String()); err != nil {
			return err
		}
	}
	return nil
}

// ReadAuthzResponse parses the authorizer's reply. Each identifier must be
// immediately followed by its authz-status.
func ReadAuthzResponse(r io.Reader) (map[docid.DocID]acl.Decision, error) {
	sc, err := NewScanner(r)
	if err != nil {
		return nil, err
	}

	out := map[docid.DocID]acl.Decision{}
	for {
		cmd, err := sc.Next()
		if errors.Is(err, io.EOF) || errors.Is(err, ErrEndOfList) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}

		switch cmd.Name {
		case cmdRepositoryUnavailable:
			return nil, ErrRepositoryUnavailable
		case cmdID:
			status, err := expectPaired(sc, cmdID, cmdAuthzStatus)
			if err != nil {
				return nil, err
			}
			d, err := acl.ParseDecision(status)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedStream, err)
			}
			out[docid.DocID(cmd.Arg)] = d
		default:
			logger.Warn("Skipping unknown authz response command", "command", cmd.Name)
		}
	}
}

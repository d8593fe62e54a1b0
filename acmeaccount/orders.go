package acmeaccount

import (
	"context"

	"github.com/cert-ops/acmeclient/acmeerrors"
)

// OrderIterator lazily walks an account's order-URLs list (RFC 8555
// §7.1.2.1), following the Link: rel="next" header a CA may paginate the
// listing with, rather than materializing the whole list up front.
type OrderIterator struct {
	account *Account
	nextURL string
	page    []string
	done    bool
}

// Orders begins iterating the account's orders list.
func (a *Account) Orders() *OrderIterator {
	return &OrderIterator{account: a, nextURL: a.OrdersURL}
}

// Next returns the next order URL, or ok=false once the listing (and every
// advertised next page) is exhausted.
func (it *OrderIterator) Next(ctx context.Context) (string, bool, error) {
	for len(it.page) == 0 {
		if it.done {
			return "", false, nil
		}
		if it.nextURL == "" {
			return "", false, acmeerrors.NotSupportedError("orders")
		}
		if err := it.fetchPage(ctx); err != nil {
			return "", false, acmeerrors.Lazy("OrderIterator.Next", err)
		}
	}
	url := it.page[0]
	it.page = it.page[1:]
	return url, true, nil
}

func (it *OrderIterator) fetchPage(ctx context.Context) error {
	resp, err := it.account.session.Connect().SignedPostAsGet(ctx, it.account.identity(), it.account.signer, it.nextURL)
	if err != nil {
		return err
	}
	node, err := resp.Node()
	if err != nil {
		return err
	}
	urls, err := node.Field("orders").AsArray()
	if err != nil {
		return err
	}
	for _, u := range urls {
		s, err := u.AsString()
		if err != nil {
			return err
		}
		it.page = append(it.page, s)
	}

	if next := firstOf(resp.Links["next"]); next != "" {
		it.nextURL = next
	} else {
		it.done = true
	}
	return nil
}

func firstOf(vs []string) string {
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

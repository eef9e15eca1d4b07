package editor

import (
	"context"
	"net/url"
	"strings"

	"arbor/internal/domain"
	"arbor/internal/domain/services"
)

// opaqueIDLen is the length a bare fragment must exceed to be read as a
// block id rather than an ordinary in-page anchor.
const opaqueIDLen = 10

// normalizeOrigin reduces a configured origin to a bare host so it can be
// compared against link targets. Accepts a full URL or a plain host:port.
func normalizeOrigin(origin string) string {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return ""
	}
	if u, err := url.Parse(origin); err == nil && u.Host != "" {
		return u.Host
	}
	return strings.TrimSuffix(origin, "/")
}

// NavigationKind classifies what a resolved link should do.
type NavigationKind string

const (
	// NavigationNone passes the link through untouched.
	NavigationNone NavigationKind = "none"
	// NavigationScroll scrolls to a block on the current page.
	NavigationScroll NavigationKind = "scroll"
	// NavigationOpenPage navigates to another page, scroll deferred.
	NavigationOpenPage NavigationKind = "open-page"
	// NavigationExternal opens the URL in a new browsing context.
	NavigationExternal NavigationKind = "external"
)

// ScrollEffect tells the client how to bring a block into view.
type ScrollEffect struct {
	BlockID     string `json:"block_id"`
	Behavior    string `json:"behavior"`
	Align       string `json:"align"`
	HighlightMs int    `json:"highlight_ms"`
}

// NavigationAction is the resolved outcome of a link activation.
type NavigationAction struct {
	Kind   NavigationKind `json:"kind"`
	PageID string         `json:"page_id,omitempty"`
	URL    string         `json:"url,omitempty"`
	Scroll *ScrollEffect  `json:"scroll,omitempty"`
}

// FragmentTarget is what an internal fragment points at. PageID is empty
// for the bare same-page form.
type FragmentTarget struct {
	PageID  string
	BlockID string
}

// ResolveFragment classifies a URL fragment against the deep-link format.
// pageId:blockId names a block on a possibly different page; a bare opaque
// id (longer than 10 characters, no separator) names a block on the
// current page. Anything else is not an internal reference.
func ResolveFragment(fragment string) (FragmentTarget, bool) {
	fragment = strings.TrimPrefix(fragment, "#")
	if fragment == "" {
		return FragmentTarget{}, false
	}
	if page, block, found := strings.Cut(fragment, ":"); found {
		if page == "" || block == "" {
			return FragmentTarget{}, false
		}
		return FragmentTarget{PageID: page, BlockID: block}, true
	}
	if len(fragment) > opaqueIDLen {
		return FragmentTarget{BlockID: fragment}, true
	}
	return FragmentTarget{}, false
}

// ResolveEntry resolves a shareable deep link into the page to open and
// the block to scroll to once it loads. Entry links take the fragment
// form #<pageId> or #<pageId>:<blockId>; the input may be the fragment
// alone or a full URL carrying it. Unlike in-page link activation, the
// bare form names a page here, since there is no current page yet.
func (m *Manager) ResolveEntry(ctx context.Context, link string) (pageID, blockID string, err error) {
	link = strings.TrimSpace(link)
	fragment := link
	if u, perr := url.Parse(link); perr == nil && u.Fragment != "" {
		fragment = u.Fragment
	}
	fragment = strings.TrimPrefix(fragment, "#")
	if fragment == "" {
		return "", "", &domain.ValidationError{Message: "entry link has no target"}
	}

	pageID, blockID, _ = strings.Cut(fragment, ":")
	if pageID == "" {
		return "", "", &domain.ValidationError{Message: "entry link has no page id"}
	}
	if _, err := m.pages.GetPage(ctx, pageID); err != nil {
		return "", "", err
	}
	return pageID, blockID, nil
}

// Navigate resolves an activated link. Internal fragments become scroll or
// page-open actions; anything with a foreign host opens externally; links
// this engine has no opinion on pass through.
//
// Cross-page navigation retargets the session and discards its editing
// state; the scroll to the linked block is deferred until the client
// reports the page loaded.
func (s *Session) Navigate(ctx context.Context, href string) (*NavigationAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := url.Parse(href)
	if err != nil {
		return &NavigationAction{Kind: NavigationNone}, nil
	}

	if u.Host != "" && !strings.EqualFold(u.Host, s.manager.origin) {
		return &NavigationAction{Kind: NavigationExternal, URL: href}, nil
	}

	target, ok := ResolveFragment(u.Fragment)
	if !ok {
		if u.Host != "" || u.Scheme != "" {
			return &NavigationAction{Kind: NavigationExternal, URL: href}, nil
		}
		return &NavigationAction{Kind: NavigationNone}, nil
	}

	if target.PageID == "" || target.PageID == s.pageID {
		return &NavigationAction{
			Kind:   NavigationScroll,
			PageID: s.pageID,
			Scroll: s.scrollEffectLocked(target.BlockID),
		}, nil
	}

	if _, err := s.manager.pages.GetPage(ctx, target.PageID); err != nil {
		return nil, err
	}

	s.dismissSelectionLocked()
	s.clearImageSelectionLocked()
	s.surfaces = make(map[string]*surface)
	s.pageID = target.PageID
	s.pendingScroll = target.BlockID
	s.pendingPage = target.PageID
	s.term = ""
	s.termFresh = false

	s.logger.Info("session navigated", "session_id", s.ID, "page_id", target.PageID, "pending_block", target.BlockID)
	return &NavigationAction{Kind: NavigationOpenPage, PageID: target.PageID}, nil
}

// PageLoaded delivers the deferred scroll for a page the client just
// finished loading. The pending target fires once and clears.
func (s *Session) PageLoaded(pageID string) *ScrollEffect {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pendingScroll == "" || s.pendingPage != pageID {
		return nil
	}
	eff := s.scrollEffectLocked(s.pendingScroll)
	s.pendingScroll = ""
	s.pendingPage = ""
	return eff
}

// SetTerm sets or clears the session's search term. The next render
// highlights matches; a fresh non-empty term also scrolls to the first
// match once.
func (s *Session) SetTerm(term string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	term = strings.TrimSpace(term)
	if term == s.term {
		return
	}
	s.term = term
	s.termFresh = term != ""
}

// RenderResult is a view-mode page render plus the scroll the client
// should perform, if any.
type RenderResult struct {
	Page   *services.RenderedPage `json:"page"`
	Scroll *ScrollEffect          `json:"scroll,omitempty"`
}

// Render produces the session page's view-mode HTML with the current
// search term applied. The first-match scroll fires only on the first
// render after the term changed.
func (s *Session) Render(ctx context.Context) (*RenderResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	page, err := s.manager.pages.RenderPage(ctx, s.pageID, s.term)
	if err != nil {
		return nil, err
	}

	res := &RenderResult{Page: page}
	if s.termFresh && page.FirstMatchBlockID != nil {
		res.Scroll = s.scrollEffectLocked(*page.FirstMatchBlockID)
	}
	s.termFresh = false
	return res, nil
}

// scrollEffectLocked builds the standard scroll-and-highlight effect.
// Callers hold s.mu.
func (s *Session) scrollEffectLocked(blockID string) *ScrollEffect {
	return &ScrollEffect{
		BlockID:     blockID,
		Behavior:    "smooth",
		Align:       "center",
		HighlightMs: s.manager.registry.Navigation().HighlightMs,
	}
}

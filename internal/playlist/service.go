package playlist

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/codedghost/twitch-songbot/internal/env"
	"github.com/codedghost/twitch-songbot/internal/localdb"
	"github.com/codedghost/twitch-songbot/internal/shared/logger"
	"github.com/codedghost/twitch-songbot/internal/vip"
	"go.uber.org/zap"
)

// Broadcaster pushes a full queue snapshot to connected viewers.
type Broadcaster interface {
	Publish(Snapshot)
}

// ChatSink announces rotation and state changes in chat. Delivery is
// fire-and-forget; failures never affect queue state.
type ChatSink interface {
	Send(text string)
}

// Service serializes every queue, ledger and rotation mutation behind
// one mutex so a reader can never observe a half-updated queue.
type Service struct {
	mu     sync.Mutex
	ledger *vip.Ledger
	rot    *rotation

	broadcaster Broadcaster
	chat        ChatSink

	now func() time.Time
}

// NewService wires the queue around a token ledger and a broadcast
// channel. A nil rng falls back to a time-seeded source; tests inject a
// fixed seed to make regular-tier selection deterministic.
func NewService(ledger *vip.Ledger, broadcaster Broadcaster, rng *rand.Rand) *Service {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Service{
		ledger:      ledger,
		rot:         newRotation(rng),
		broadcaster: broadcaster,
		now:         time.Now,
	}
}

// SetChatSink attaches the chat announcement channel.
func (s *Service) SetChatSink(chat ChatSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat = chat
}

// AddRequest queues a request. Vip requests consume a token up front;
// regular requests are gated by the playlist state and the per-user cap.
// Returns the 1-based position within the request's tier.
func (s *Service) AddRequest(username, text string, vipRequest bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = localdb.NormalizeUsername(username)
	text = strings.TrimSpace(text)
	if username == "" || text == "" {
		return 0, ErrNoRequestEntered
	}

	state := GetState()
	if state == StateVeryClosed {
		return 0, ErrPlaylistVeryClosed
	}
	if !vipRequest {
		if state == StateClosed {
			return 0, ErrPlaylistClosed
		}
		count, err := localdb.CountActiveRegular(username)
		if err != nil {
			return 0, persistenceErr(err)
		}
		if count >= env.Value.MaxUserRequests {
			return 0, ErrDuplicateRequest
		}
	}

	if vipRequest {
		if err := s.ledger.UseVip(username); err != nil {
			return 0, err
		}
	}

	sr := localdb.SongRequest{
		Username:    username,
		Text:        text,
		RequestTime: s.now(),
	}
	if vipRequest {
		at := s.now()
		sr.VipTime = &at
	}

	id, err := localdb.InsertSongRequest(sr)
	if err != nil {
		if vipRequest {
			if rerr := s.ledger.RefundVip(username, false); rerr != nil {
				logger.Error("Failed to refund vip after insert failure", zap.Error(rerr))
			}
		}
		return 0, persistenceErr(err)
	}

	regular, vips, err := s.load()
	if err != nil {
		return 0, persistenceErr(err)
	}
	s.rot.ensureCurrent(regular, vips)

	position := tierPosition(regular, id)
	if vipRequest {
		position = tierPosition(vips, id)
	}

	logger.Info("Request added",
		zap.String("username", username), zap.Bool("vip", vipRequest), zap.Int("position", position))
	s.publish(regular, vips)
	return position, nil
}

// AddSuperVipRequest queues the session's single super vip request.
func (s *Service) AddSuperVipRequest(username, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = localdb.NormalizeUsername(username)
	text = strings.TrimSpace(text)
	if username == "" || text == "" {
		return ErrNoRequestEntered
	}

	if GetState() == StateVeryClosed {
		return ErrPlaylistVeryClosed
	}

	queued, err := localdb.HasUnplayedSuperVip()
	if err != nil {
		return persistenceErr(err)
	}
	if queued {
		return ErrOnlyOneSuper
	}

	if err := s.ledger.UseSuperVip(username); err != nil {
		return err
	}

	at := s.now()
	_, err = localdb.InsertSongRequest(localdb.SongRequest{
		Username:     username,
		Text:         text,
		RequestTime:  at,
		VipTime:      &at,
		SuperVipTime: &at,
	})
	if err != nil {
		if rerr := s.ledger.RefundSuperVip(username, false); rerr != nil {
			logger.Error("Failed to refund super vip after insert failure", zap.Error(rerr))
		}
		return persistenceErr(err)
	}

	regular, vips, err := s.load()
	if err != nil {
		return persistenceErr(err)
	}
	s.rot.ensureCurrent(regular, vips)

	logger.Info("Super vip request added", zap.String("username", username))
	s.publish(regular, vips)
	return nil
}

// PromoteRequest elevates the caller's regular request to the vip tier
// and returns its new 1-based vip position.
func (s *Service) PromoteRequest(username string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = localdb.NormalizeUsername(username)
	regular, _, err := s.load()
	if err != nil {
		return 0, persistenceErr(err)
	}

	owned := ownedBy(regular, username)
	if len(owned) == 0 {
		return 0, ErrNotFound
	}
	return s.promote(owned[0])
}

// PromoteRequestByID elevates a specific request; the caller must own it
// unless acting as a moderator.
func (s *Service) PromoteRequestByID(id int64, username string, isMod bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = localdb.NormalizeUsername(username)
	sr, err := localdb.GetSongRequest(id)
	if err != nil {
		return 0, persistenceErr(err)
	}
	if sr == nil || sr.Played || !isRegular(*sr) {
		return 0, ErrNotFound
	}
	if sr.Username != username && !isMod {
		return 0, ErrNotFound
	}

	// The token always comes out of the requester's account.
	return s.promote(*sr)
}

func (s *Service) promote(sr localdb.SongRequest) (int, error) {
	if err := s.ledger.UseVip(sr.Username); err != nil {
		return 0, err
	}
	if err := localdb.SetVipTime(sr.ID, s.now()); err != nil {
		// Compensate the consumed token; the request stays regular.
		if rerr := s.ledger.RefundVip(sr.Username, false); rerr != nil {
			logger.Error("Failed to refund vip after promote failure", zap.Error(rerr))
		}
		return 0, persistenceErr(err)
	}

	regular, vips, err := s.load()
	if err != nil {
		return 0, persistenceErr(err)
	}
	position := tierPosition(vips, sr.ID)

	logger.Info("Request promoted", zap.String("username", sr.Username), zap.Int64("id", sr.ID))
	s.publish(regular, vips)
	return position, nil
}

// EditRequest resolves an edit command against the caller's queued
// requests and applies the new text. The current item cannot be edited.
func (s *Service) EditRequest(username, command string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = localdb.NormalizeUsername(username)
	regular, vips, err := s.load()
	if err != nil {
		return persistenceErr(err)
	}
	regular, vips = s.withoutCurrent(regular, vips)

	id, text, err := resolveEdit(username, command, regular, vips)
	if err != nil {
		return err
	}
	if err := localdb.UpdateSongRequestText(id, text); err != nil {
		return persistenceErr(err)
	}

	regular, vips, err = s.load()
	if err != nil {
		return persistenceErr(err)
	}

	logger.Info("Request edited", zap.String("username", username), zap.Int64("id", id))
	s.publish(regular, vips)
	return nil
}

// EditSuperVipRequest replaces the text of the caller's queued super vip
// request.
func (s *Service) EditSuperVipRequest(username, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = localdb.NormalizeUsername(username)
	text = strings.TrimSpace(text)
	if username == "" || text == "" {
		return ErrNoRequestEntered
	}

	_, vips, err := s.load()
	if err != nil {
		return persistenceErr(err)
	}

	var target *localdb.SongRequest
	for _, sr := range vips {
		if isSuperVip(sr) && sr.Username == username && !s.isCurrent(sr.ID) {
			item := sr
			target = &item
			break
		}
	}
	if target == nil {
		return ErrNotFound
	}

	if err := localdb.UpdateSongRequestText(target.ID, text); err != nil {
		return persistenceErr(err)
	}

	regular, vips, err := s.load()
	if err != nil {
		return persistenceErr(err)
	}
	s.publish(regular, vips)
	return nil
}

// RemoveRequest drops one of the caller's requests. Without an index the
// caller's regular request is removed; with an index the addressed vip
// request is removed and its token refunded. Moderators may remove any
// vip request by index.
func (s *Service) RemoveRequest(username, command string, isMod bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = localdb.NormalizeUsername(username)
	regular, vips, err := s.load()
	if err != nil {
		return persistenceErr(err)
	}
	regular, vips = s.withoutCurrent(regular, vips)

	// Only a bare integer addresses the vip list; anything with
	// trailing text falls through to removing the caller's regular
	// request.
	index := 0
	if n, err := strconv.Atoi(strings.TrimSpace(command)); err == nil {
		index = n
	}

	if index == 0 {
		owned := ownedBy(regular, username)
		if len(owned) == 0 {
			return ErrNotFound
		}
		if err := localdb.DeleteSongRequest(owned[0].ID); err != nil {
			return persistenceErr(err)
		}
	} else {
		if index < 1 || index > len(vips) {
			return ErrNotFound
		}
		addressed := vips[index-1]
		if addressed.Username != username && !isMod {
			return ErrNotFound
		}
		if isSuperVip(addressed) {
			if err := s.ledger.RefundSuperVip(addressed.Username, false); err != nil {
				return err
			}
		} else {
			if err := s.ledger.RefundVip(addressed.Username, false); err != nil {
				return err
			}
		}
		if err := localdb.DeleteSongRequest(addressed.ID); err != nil {
			return persistenceErr(err)
		}
	}

	regular, vips, err = s.load()
	if err != nil {
		return persistenceErr(err)
	}

	logger.Info("Request removed", zap.String("username", username), zap.Int("index", index))
	s.publish(regular, vips)
	return nil
}

// RemoveSuperRequest withdraws the caller's queued super vip request and
// refunds the full token cost. The current item cannot be withdrawn.
func (s *Service) RemoveSuperRequest(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = localdb.NormalizeUsername(username)
	_, vips, err := s.load()
	if err != nil {
		return persistenceErr(err)
	}

	var target *localdb.SongRequest
	for _, sr := range vips {
		if isSuperVip(sr) && sr.Username == username && !s.isCurrent(sr.ID) {
			item := sr
			target = &item
			break
		}
	}
	if target == nil {
		return ErrNotFound
	}

	if err := s.ledger.RefundSuperVip(username, false); err != nil {
		return err
	}
	if err := localdb.MarkPlayed(target.ID); err != nil {
		return persistenceErr(err)
	}

	regular, vips, err := s.load()
	if err != nil {
		return persistenceErr(err)
	}
	s.publish(regular, vips)
	return nil
}

// ArchiveCurrent marks the current item played and advances the
// rotation. id 0 archives whatever is current; a non-zero id must match
// the current item, guarding a stale web click against archiving the
// wrong request.
func (s *Service) ArchiveCurrent(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rot.current == nil {
		return ErrNotFound
	}
	if id != 0 && id != s.rot.current.ID {
		return ErrNotFound
	}
	return s.archiveCurrent()
}

// ArchiveRequestByID marks a specific queued request played, refunding
// its unplayed token cost. Archiving the current item goes through the
// rotation so the next request starts playing.
func (s *Service) ArchiveRequestByID(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isCurrent(id) {
		return s.archiveCurrent()
	}

	sr, err := localdb.GetSongRequest(id)
	if err != nil {
		return persistenceErr(err)
	}
	if sr == nil || sr.Played {
		return ErrNotFound
	}

	if isSuperVip(*sr) {
		if err := s.ledger.RefundSuperVip(sr.Username, false); err != nil {
			return err
		}
	} else if isVip(*sr) {
		if err := s.ledger.RefundVip(sr.Username, false); err != nil {
			return err
		}
	}
	if err := localdb.MarkPlayed(id); err != nil {
		return persistenceErr(err)
	}

	regular, vips, err := s.load()
	if err != nil {
		return persistenceErr(err)
	}
	logger.Info("Archived queued request", zap.Int64("id", id), zap.String("username", sr.Username))
	s.publish(regular, vips)
	return nil
}

func (s *Service) archiveCurrent() error {
	if err := localdb.MarkPlayed(s.rot.current.ID); err != nil {
		return persistenceErr(err)
	}
	logger.Info("Archived current request",
		zap.Int64("id", s.rot.current.ID), zap.String("text", s.rot.current.Text))

	regular, vips, err := s.load()
	if err != nil {
		return persistenceErr(err)
	}
	s.rot.advance(regular, vips, s.present, env.Value.ConcurrentVipSlots)

	if s.chat != nil && s.rot.current != nil {
		s.chat.Send(fmt.Sprintf("Next up: %s (requested by %s)", s.rot.current.Text, s.rot.current.Username))
	}

	s.publish(regular, vips)
	return nil
}

// ClearQueue archives every queued request and refunds unplayed vip and
// super vip tokens in one transaction. The current item is not refunded.
func (s *Service) ClearQueue() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := localdb.ListUnplayed()
	if err != nil {
		return persistenceErr(err)
	}

	for _, sr := range items {
		if s.isCurrent(sr.ID) {
			s.rot.current = nil
			continue
		}
		if isSuperVip(sr) {
			if err := s.ledger.RefundSuperVip(sr.Username, true); err != nil {
				return err
			}
		} else if isVip(sr) {
			if err := s.ledger.RefundVip(sr.Username, true); err != nil {
				return err
			}
		}
	}
	s.rot.current = nil
	s.rot.vipStreak = 0

	refunds := s.ledger.TakePendingRefunds()
	if err := localdb.ClearUnplayedWithRefunds(refunds); err != nil {
		// The transaction rolled back, so the batch is still owed.
		s.ledger.RestorePendingRefunds(refunds)
		return persistenceErr(err)
	}

	s.publish(nil, nil)
	return nil
}

// OpenPlaylist accepts all request tiers.
func (s *Service) OpenPlaylist() error {
	return s.transition(StateOpen, "The playlist is now open, get your requests in!")
}

// ClosePlaylist accepts only vip and super vip requests.
func (s *Service) ClosePlaylist() error {
	return s.transition(StateClosed, "The playlist is now closed to regular requests. VIPs are still welcome!")
}

// VeryClosePlaylist rejects every new request.
func (s *Service) VeryClosePlaylist() error {
	return s.transition(StateVeryClosed, "The playlist is now fully closed. No new requests!")
}

func (s *Service) transition(state State, announcement string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := setState(state); err != nil {
		return err
	}
	if s.chat != nil {
		s.chat.Send(announcement)
	}

	regular, vips, err := s.load()
	if err != nil {
		return persistenceErr(err)
	}
	s.publish(regular, vips)
	return nil
}

// State returns the persisted playlist status.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return GetState()
}

// Snapshot builds the broadcast view, lazily selecting a current item
// when the queue is non-empty and nothing is playing.
func (s *Service) Snapshot() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	regular, vips, err := s.load()
	if err != nil {
		return Snapshot{}, persistenceErr(err)
	}
	s.rot.ensureCurrent(regular, vips)
	return s.snapshot(regular, vips), nil
}

// UserRequests lists the caller's queued requests with their 1-based
// tier positions, for a whisper-style acknowledgement.
func (s *Service) UserRequests(username string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = localdb.NormalizeUsername(username)
	regular, vips, err := s.load()
	if err != nil {
		return nil, persistenceErr(err)
	}
	regular, vips = s.withoutCurrent(regular, vips)

	out := []string{}
	if s.rot.current != nil && s.rot.current.Username == username {
		out = append(out, fmt.Sprintf("Currently playing: %s", s.rot.current.Text))
	}
	for _, sr := range ownedBy(vips, username) {
		label := "Vip"
		if isSuperVip(sr) {
			label = "Super Vip"
		}
		out = append(out, fmt.Sprintf("%s #%d: %s", label, tierPosition(vips, sr.ID), sr.Text))
	}
	for _, sr := range ownedBy(regular, username) {
		out = append(out, fmt.Sprintf("Regular #%d: %s", tierPosition(regular, sr.ID), sr.Text))
	}
	return out, nil
}

// MarkInLibrary flags a request once its supporting material is ready.
func (s *Service) MarkInLibrary(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sr, err := localdb.GetSongRequest(id)
	if err != nil {
		return persistenceErr(err)
	}
	if sr == nil || sr.Played {
		return ErrNotFound
	}
	if err := localdb.SetInLibrary(id, true); err != nil {
		return persistenceErr(err)
	}
	if s.rot.current != nil && s.rot.current.ID == id {
		s.rot.current.InLibrary = true
	}

	regular, vips, err := s.load()
	if err != nil {
		return persistenceErr(err)
	}
	s.publish(regular, vips)
	return nil
}

func (s *Service) load() ([]localdb.SongRequest, []localdb.SongRequest, error) {
	items, err := localdb.ListUnplayed()
	if err != nil {
		return nil, nil, err
	}
	return OrderRegular(items), OrderVip(items), nil
}

func (s *Service) isCurrent(id int64) bool {
	return s.rot.current != nil && s.rot.current.ID == id
}

func (s *Service) withoutCurrent(regular, vips []localdb.SongRequest) ([]localdb.SongRequest, []localdb.SongRequest) {
	if s.rot.current == nil {
		return regular, vips
	}
	return excludeID(regular, s.rot.current.ID), excludeID(vips, s.rot.current.ID)
}

// present judges whether a regular requester is around to play their
// song: recently active in chat, or the request itself is fresh enough
// to assume they are still watching.
func (s *Service) present(sr localdb.SongRequest) bool {
	now := s.now()
	if sr.RequestTime.Add(env.Value.RequestGraceWindow).After(now) {
		return true
	}
	if sr.VipTime != nil && sr.VipTime.Add(env.Value.VipGraceWindow).After(now) {
		return true
	}
	u, err := localdb.GetUser(sr.Username)
	if err != nil || u == nil || u.LastInChat == nil {
		return false
	}
	return u.LastInChat.Add(env.Value.PresenceWindow).After(now)
}

func (s *Service) snapshot(regular, vips []localdb.SongRequest) Snapshot {
	regular, vips = s.withoutCurrent(regular, vips)
	revision, err := gonanoid.New()
	if err != nil {
		revision = fmt.Sprintf("%d", s.now().UnixNano())
	}
	if regular == nil {
		regular = []localdb.SongRequest{}
	}
	if vips == nil {
		vips = []localdb.SongRequest{}
	}
	return Snapshot{
		Revision: revision,
		State:    GetState(),
		Current:  s.rot.current,
		Regular:  regular,
		Vip:      vips,
	}
}

func (s *Service) publish(regular, vips []localdb.SongRequest) {
	// Every broadcast re-runs the lazy selection, so a mutation that
	// refills an idle queue never leaves subscribers staring at an
	// empty current slot.
	s.rot.ensureCurrent(regular, vips)
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.Publish(s.snapshot(regular, vips))
}

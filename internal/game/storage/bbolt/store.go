package bbolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/louisbranch/questmaster/internal/game/domain"
	"github.com/louisbranch/questmaster/internal/game/storage"
)

const (
	sessionBucket        = "session"
	characterBucket      = "character"
	characterIndexBucket = "character_by_player"
	rollBucket           = "roll"
	eventBucket          = "event"
)

// Store provides a BoltDB-backed game store. Sessions, characters, rolls,
// and processed event IDs share one database file.
type Store struct {
	db *bbolt.DB
}

var _ storage.Store = (*Store)(nil)

// Open opens a BoltDB-backed store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// PutSession persists a session record.
func (s *Store) PutSession(ctx context.Context, session domain.Session) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(session.ID) == "" {
		return fmt.Errorf("session id is required")
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(sessionBucket))
		if bucket == nil {
			return fmt.Errorf("session bucket is missing")
		}
		return bucket.Put([]byte(session.ID), payload)
	})
}

// GetSession fetches a session record by ID.
func (s *Store) GetSession(ctx context.Context, id string) (domain.Session, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Session{}, err
	}
	if strings.TrimSpace(id) == "" {
		return domain.Session{}, fmt.Errorf("session id is required")
	}

	var session domain.Session
	err := s.db.View(func(tx *bbolt.Tx) error {
		return readRecord(tx, sessionBucket, id, &session)
	})
	if err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

// TransitionSession moves a session between states with compare-and-set
// semantics on the stored state.
func (s *Store) TransitionSession(ctx context.Context, id string, from, to domain.SessionState, now time.Time) (domain.Session, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Session{}, err
	}
	if strings.TrimSpace(id) == "" {
		return domain.Session{}, fmt.Errorf("session id is required")
	}

	var session domain.Session
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := readRecord(tx, sessionBucket, id, &session); err != nil {
			return err
		}
		if session.State != from {
			return fmt.Errorf("session %s is %s, not %s: %w", id, session.State, from, storage.ErrStateConflict)
		}
		if !domain.CanTransition(from, to) {
			return fmt.Errorf("session %s cannot move %s -> %s: %w", id, from, to, storage.ErrStateConflict)
		}

		session.State = to
		session.LastActivity = now.UTC()
		session.UpdatedAt = now.UTC()

		payload, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		return tx.Bucket([]byte(sessionBucket)).Put([]byte(id), payload)
	})
	if err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

// TouchSession refreshes a session's last activity timestamp.
func (s *Store) TouchSession(ctx context.Context, id string, now time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("session id is required")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		var session domain.Session
		if err := readRecord(tx, sessionBucket, id, &session); err != nil {
			return err
		}
		session.LastActivity = now.UTC()
		session.UpdatedAt = now.UTC()

		payload, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		return tx.Bucket([]byte(sessionBucket)).Put([]byte(id), payload)
	})
}

// ListSessions returns every stored session.
func (s *Store) ListSessions(ctx context.Context) ([]domain.Session, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	var sessions []domain.Session
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(sessionBucket))
		if bucket == nil {
			return fmt.Errorf("session bucket is missing")
		}
		return bucket.ForEach(func(_, payload []byte) error {
			var session domain.Session
			if err := json.Unmarshal(payload, &session); err != nil {
				return fmt.Errorf("unmarshal session: %w", err)
			}
			sessions = append(sessions, session)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// PutCharacter persists a character record and its player lookup index.
func (s *Store) PutCharacter(ctx context.Context, character domain.Character) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(character.ID) == "" {
		return fmt.Errorf("character id is required")
	}

	payload, err := json.Marshal(character)
	if err != nil {
		return fmt.Errorf("marshal character: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(characterBucket))
		if bucket == nil {
			return fmt.Errorf("character bucket is missing")
		}
		if err := bucket.Put([]byte(character.ID), payload); err != nil {
			return err
		}
		index := tx.Bucket([]byte(characterIndexBucket))
		if index == nil {
			return fmt.Errorf("character index bucket is missing")
		}
		return index.Put(playerIndexKey(character.SessionID, character.PlayerID), []byte(character.ID))
	})
}

// GetCharacter fetches a character record by ID.
func (s *Store) GetCharacter(ctx context.Context, id string) (domain.Character, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Character{}, err
	}
	if strings.TrimSpace(id) == "" {
		return domain.Character{}, fmt.Errorf("character id is required")
	}

	var character domain.Character
	err := s.db.View(func(tx *bbolt.Tx) error {
		return readRecord(tx, characterBucket, id, &character)
	})
	if err != nil {
		return domain.Character{}, err
	}
	return character, nil
}

// GetCharacterByPlayer fetches the active character a player controls in a
// session.
func (s *Store) GetCharacterByPlayer(ctx context.Context, sessionID, playerID string) (domain.Character, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Character{}, err
	}
	if strings.TrimSpace(sessionID) == "" {
		return domain.Character{}, fmt.Errorf("session id is required")
	}
	if strings.TrimSpace(playerID) == "" {
		return domain.Character{}, fmt.Errorf("player id is required")
	}

	var character domain.Character
	err := s.db.View(func(tx *bbolt.Tx) error {
		index := tx.Bucket([]byte(characterIndexBucket))
		if index == nil {
			return fmt.Errorf("character index bucket is missing")
		}
		characterID := index.Get(playerIndexKey(sessionID, playerID))
		if characterID == nil {
			return storage.ErrNotFound
		}
		return readRecord(tx, characterBucket, string(characterID), &character)
	})
	if err != nil {
		return domain.Character{}, err
	}
	if character.Removed {
		return domain.Character{}, storage.ErrNotFound
	}
	return character, nil
}

// ListCharacters returns all active characters in a session.
func (s *Store) ListCharacters(ctx context.Context, sessionID string) ([]domain.Character, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("session id is required")
	}

	var characters []domain.Character
	err := s.db.View(func(tx *bbolt.Tx) error {
		index := tx.Bucket([]byte(characterIndexBucket))
		if index == nil {
			return fmt.Errorf("character index bucket is missing")
		}
		prefix := []byte(sessionID + "/")
		cursor := index.Cursor()
		for key, characterID := cursor.Seek(prefix); key != nil && strings.HasPrefix(string(key), string(prefix)); key, characterID = cursor.Next() {
			var character domain.Character
			if err := readRecord(tx, characterBucket, string(characterID), &character); err != nil {
				return err
			}
			if character.Removed {
				continue
			}
			characters = append(characters, character)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return characters, nil
}

// UpdateCharacterHP applies a hit point delta inside a single write
// transaction so concurrent updates cannot interleave.
func (s *Store) UpdateCharacterHP(ctx context.Context, id string, delta int, now time.Time) (domain.Character, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Character{}, err
	}
	if strings.TrimSpace(id) == "" {
		return domain.Character{}, fmt.Errorf("character id is required")
	}

	var character domain.Character
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := readRecord(tx, characterBucket, id, &character); err != nil {
			return err
		}
		character.HPCurrent = domain.ApplyHPDelta(character.HPCurrent, character.HPMax, delta)
		character.UpdatedAt = now.UTC()

		payload, err := json.Marshal(character)
		if err != nil {
			return fmt.Errorf("marshal character: %w", err)
		}
		return tx.Bucket([]byte(characterBucket)).Put([]byte(id), payload)
	})
	if err != nil {
		return domain.Character{}, err
	}
	return character, nil
}

// RemoveCharacter marks a character as removed. The record and its roll
// history stay on disk.
func (s *Store) RemoveCharacter(ctx context.Context, id string, now time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("character id is required")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		var character domain.Character
		if err := readRecord(tx, characterBucket, id, &character); err != nil {
			return err
		}
		character.Removed = true
		character.UpdatedAt = now.UTC()

		payload, err := json.Marshal(character)
		if err != nil {
			return fmt.Errorf("marshal character: %w", err)
		}
		return tx.Bucket([]byte(characterBucket)).Put([]byte(id), payload)
	})
}

// AppendRoll stores a roll in the session's history and evicts the oldest
// entries beyond retention.
func (s *Store) AppendRoll(ctx context.Context, roll domain.Roll, retention int) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(roll.SessionID) == "" {
		return fmt.Errorf("session id is required")
	}
	if retention <= 0 {
		retention = domain.DefaultRollRetention
	}

	payload, err := json.Marshal(roll)
	if err != nil {
		return fmt.Errorf("marshal roll: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket([]byte(rollBucket))
		if root == nil {
			return fmt.Errorf("roll bucket is missing")
		}
		bucket, err := root.CreateBucketIfNotExists([]byte(roll.SessionID))
		if err != nil {
			return fmt.Errorf("create session roll bucket: %w", err)
		}

		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("next roll sequence: %w", err)
		}
		if err := bucket.Put(rollKey(seq), payload); err != nil {
			return err
		}

		total := 0
		countCursor := bucket.Cursor()
		for key, _ := countCursor.First(); key != nil; key, _ = countCursor.Next() {
			total++
		}

		cursor := bucket.Cursor()
		for key, _ := cursor.First(); key != nil && total > retention; key, _ = cursor.Next() {
			if err := cursor.Delete(); err != nil {
				return err
			}
			total--
		}
		return nil
	})
}

// ListRolls returns up to limit rolls for a session, newest first. A limit
// of zero or less returns the full retained history.
func (s *Store) ListRolls(ctx context.Context, sessionID string, limit int) ([]domain.Roll, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("session id is required")
	}

	var rolls []domain.Roll
	err := s.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket([]byte(rollBucket))
		if root == nil {
			return fmt.Errorf("roll bucket is missing")
		}
		bucket := root.Bucket([]byte(sessionID))
		if bucket == nil {
			return nil
		}
		cursor := bucket.Cursor()
		for key, payload := cursor.Last(); key != nil; key, payload = cursor.Prev() {
			if limit > 0 && len(rolls) >= limit {
				break
			}
			var roll domain.Roll
			if err := json.Unmarshal(payload, &roll); err != nil {
				return fmt.Errorf("unmarshal roll: %w", err)
			}
			rolls = append(rolls, roll)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rolls, nil
}

// MarkEventProcessed records a transport event ID and reports whether it had
// already been recorded. The check and the write share one transaction.
func (s *Store) MarkEventProcessed(ctx context.Context, eventID string) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	if strings.TrimSpace(eventID) == "" {
		return false, fmt.Errorf("event id is required")
	}

	var already bool
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(eventBucket))
		if bucket == nil {
			return fmt.Errorf("event bucket is missing")
		}
		if bucket.Get([]byte(eventID)) != nil {
			already = true
			return nil
		}
		return bucket.Put([]byte(eventID), []byte(time.Now().UTC().Format(time.RFC3339)))
	})
	if err != nil {
		return false, err
	}
	return already, nil
}

// EventProcessed reports whether a transport event ID has been recorded,
// without recording it.
func (s *Store) EventProcessed(ctx context.Context, eventID string) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	if strings.TrimSpace(eventID) == "" {
		return false, fmt.Errorf("event id is required")
	}

	var processed bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(eventBucket))
		if bucket == nil {
			return fmt.Errorf("event bucket is missing")
		}
		processed = bucket.Get([]byte(eventID)) != nil
		return nil
	})
	if err != nil {
		return false, err
	}
	return processed, nil
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{sessionBucket, characterBucket, characterIndexBucket, rollBucket, eventBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

func readRecord(tx *bbolt.Tx, bucketName, id string, out any) error {
	bucket := tx.Bucket([]byte(bucketName))
	if bucket == nil {
		return fmt.Errorf("%s bucket is missing", bucketName)
	}
	payload := bucket.Get([]byte(id))
	if payload == nil {
		return storage.ErrNotFound
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("unmarshal %s: %w", bucketName, err)
	}
	return nil
}

func playerIndexKey(sessionID, playerID string) []byte {
	return []byte(sessionID + "/" + playerID)
}

func rollKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

package scoring

import (
	"hash/fnv"
	"time"
)

// DateLayout is the calendar date format hashed by the daily bonus.
const DateLayout = "2006-01-02"

// DailyBonus is the task that carries an extra multiplier for one day.
type DailyBonus struct {
	TaskID     string `json:"task_id"`
	Date       string `json:"date"`
	Multiplier int    `json:"multiplier"`
}

func hash32(parts ...string) uint32 {
	h := fnv.New32a()
	for i, p := range parts {
		if i > 0 {
			_, _ = h.Write([]byte{'|'})
		}
		_, _ = h.Write([]byte(p))
	}
	return h.Sum32()
}

// PickDailyBonus selects one task for the calendar day of date. The result
// depends only on the id set, the date and the salt, so every caller on the
// same day sees the same pick. ok is false when taskIDs is empty.
func PickDailyBonus(taskIDs []string, date time.Time, salt string) (DailyBonus, bool) {
	if len(taskIDs) == 0 {
		return DailyBonus{}, false
	}
	day := date.Format(DateLayout)

	var (
		best     string
		bestHash uint32
		found    bool
	)
	for _, id := range taskIDs {
		h := hash32(id, day)
		// ties go to the smaller id so input order never matters
		if !found || h > bestHash || (h == bestHash && id < best) {
			best, bestHash, found = id, h, true
		}
	}

	multiplier := 2
	if hash32(best, day, salt)%5 == 0 {
		multiplier = 3
	}
	return DailyBonus{TaskID: best, Date: day, Multiplier: multiplier}, true
}

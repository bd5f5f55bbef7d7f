package models

import "time"

// Rating is one end user's score for a listener. Ratings are never edited.
type Rating struct {
	ID         string    `json:"id"`
	ListenerID string    `json:"listenerId"`
	UserID     string    `json:"userId"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment"`
	Timestamp  time.Time `json:"timestamp"`
}

// AverageFor returns the mean score and the number of ratings for listenerID.
func AverageFor(ratings []Rating, listenerID string) (float64, int) {
	sum, count := 0, 0
	for _, r := range ratings {
		if r.ListenerID != listenerID {
			continue
		}
		sum += r.Rating
		count++
	}
	if count == 0 {
		return 0, 0
	}
	return float64(sum) / float64(count), count
}

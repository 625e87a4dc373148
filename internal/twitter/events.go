package twitter

// Account Activity event payloads, trimmed to the fields we read.

type Tweet struct {
	Id            int64          `json:"id"`
	IdStr         string         `json:"id_str"`
	Text          string         `json:"text"`
	Truncated     bool           `json:"truncated"`
	ExtendedTweet *ExtendedTweet `json:"extended_tweet"`
	User          TweetUser      `json:"user"`
	Entities      Entities       `json:"entities"`
}

// FullText returns the untruncated tweet text. Tweets over 140 chars
// arrive truncated with the real text in extended_tweet.
func (t *Tweet) FullText() string {
	if t.Truncated && t.ExtendedTweet != nil && t.ExtendedTweet.FullText != "" {
		return t.ExtendedTweet.FullText
	}
	return t.Text
}

type ExtendedTweet struct {
	FullText string `json:"full_text"`
}

type TweetUser struct {
	IdStr      string `json:"id_str"`
	ScreenName string `json:"screen_name"`
}

type Entities struct {
	UserMentions []Mention `json:"user_mentions"`
}

type Mention struct {
	IdStr      string `json:"id_str"`
	ScreenName string `json:"screen_name"`
}

type DirectMessageEvent struct {
	Id               string `json:"id"`
	CreatedTimestamp string `json:"created_timestamp"`
	MessageCreate    struct {
		SenderId    string `json:"sender_id"`
		MessageData struct {
			Text     string `json:"text"`
			Entities struct {
				Urls []struct {
					ExpandedUrl string `json:"expanded_url"`
				} `json:"urls"`
			} `json:"entities"`
		} `json:"message_data"`
	} `json:"message_create"`
}

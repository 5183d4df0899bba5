package db

import (
	"context"
	"fmt"
)

// GetUsersByIDs resolves full user records (profile joined with features)
// for the given identifiers. The id list is bound as an array parameter,
// never interpolated. Order is stable by user id. An empty id list returns
// an empty result without querying.
func (db *DB) GetUsersByIDs(ctx context.Context, userIDs []string) ([]User, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	rows, err := db.pool.Query(ctx,
		`SELECT u.user_id, COALESCE(u.customer_name, ''), COALESCE(u.preferred_channel, ''),
		        COALESCE(u.sms_opt_in, FALSE), COALESCE(u.kakao_opt_in, FALSE),
		        COALESCE(u.push_opt_in, FALSE), COALESCE(u.email_opt_in, FALSE),
		        COALESCE(uf.top_category_30d, ''), COALESCE(uf.keyword, '')
		 FROM users u
		 LEFT JOIN user_features uf ON uf.user_id = u.user_id
		 WHERE u.user_id = ANY($1)
		 ORDER BY u.user_id`,
		userIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.UserID, &u.CustomerName, &u.PreferredChannel,
			&u.SMSOptIn, &u.KakaoOptIn, &u.PushOptIn, &u.EmailOptIn,
			&u.TopCategory30d, &u.Keyword); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, nil
}

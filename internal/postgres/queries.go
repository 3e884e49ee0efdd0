package postgres

const (
	queryGetRoom = `
		SELECT id, owner_id, title, is_active, viewer_count, created_at
		FROM rooms
		WHERE id = $1`
	queryRoomIsActive = `SELECT is_active FROM rooms WHERE id = $1`
	queryRoomOwner    = `SELECT owner_id FROM rooms WHERE id = $1`
	queryIncViewers   = `
		UPDATE rooms
		SET viewer_count = viewer_count + 1
		WHERE id = $1
		RETURNING viewer_count`
	// never below zero
	queryDecViewers = `
		UPDATE rooms
		SET viewer_count = GREATEST(viewer_count - 1, 0)
		WHERE id = $1
		RETURNING viewer_count`
	queryActiveRooms = `SELECT COUNT(*) FROM rooms WHERE is_active`
	queryUpsertRoom  = `
		INSERT INTO rooms (id, owner_id, title, is_active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET owner_id = EXCLUDED.owner_id, title = EXCLUDED.title, is_active = EXCLUDED.is_active
		RETURNING viewer_count, created_at`

	queryUserFlags = `SELECT is_vip, is_admin FROM users WHERE id = $1`

	queryGiftPrice = `SELECT price FROM gifts WHERE id = $1`
	queryListGifts = `
		SELECT id, name, price, icon, description
		FROM gifts
		ORDER BY price ASC, id ASC`

	queryGetWallet = `
		SELECT user_id, balance, total_spent, total_received
		FROM wallets
		WHERE user_id = $1`
	queryEnsureWallets = `
		INSERT INTO wallets (user_id)
		SELECT unnest($1::bigint[])
		ORDER BY 1
		ON CONFLICT (user_id) DO NOTHING`
	queryLockWallets = `
		SELECT user_id, balance
		FROM wallets
		WHERE user_id = ANY($1::bigint[])
		ORDER BY user_id
		FOR UPDATE`
	queryDebitWallet = `
		UPDATE wallets
		SET balance = balance - $2, total_spent = total_spent + $2, updated_at = now()
		WHERE user_id = $1`
	queryCreditWallet = `
		UPDATE wallets
		SET balance = balance + $2, total_received = total_received + $2, updated_at = now()
		WHERE user_id = $1`
	queryRecharge = `
		INSERT INTO wallets (user_id, balance)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET balance = wallets.balance + EXCLUDED.balance, updated_at = now()
		RETURNING user_id, balance, total_spent, total_received`
	queryInsertGiftTx = `
		INSERT INTO gift_transactions
			(id, sender_id, receiver_id, gift_id, room_id, quantity, unit_price, total_price, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	queryListGiftTx = `
		SELECT id, sender_id, receiver_id, gift_id, room_id, quantity, unit_price, total_price, message, created_at
		FROM gift_transactions
		WHERE sender_id = $1 OR receiver_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	queryInsertDanmu = `
		INSERT INTO danmus (room_id, user_id, content, color, size, position, font_size, font_family,
		                    background_color, border_color, is_vip, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at`
	danmuColumns   = `id, room_id, user_id, content, color, size, position, font_size, font_family, background_color, border_color, is_vip, created_at`
	queryGetDanmu  = `SELECT ` + danmuColumns + ` FROM danmus WHERE id = $1`
	queryDelDanmu  = `DELETE FROM danmus WHERE id = $1`
	queryDanmuPage = `
		SELECT ` + danmuColumns + `
		FROM danmus
		WHERE room_id = $1
		  AND (
		    $2::timestamptz IS NULL
		    OR created_at < $2
		    OR (created_at = $2 AND id < $3)
		  )
		ORDER BY created_at DESC, id DESC
		LIMIT $4`
	queryPopularDanmu = `
		SELECT content, COUNT(*) AS n
		FROM danmus
		WHERE room_id = $1 AND created_at >= $2
		GROUP BY content
		ORDER BY n DESC, content ASC
		LIMIT $3`

	querySaveMessage = `
		INSERT INTO room_messages (room_id, user_id, text, reply_to)
		VALUES ($1, $2, $3, $4)
		RETURNING id, room_id, user_id, text, reply_to, created_at`
	queryMessagePage = `
		SELECT id, room_id, user_id, text, reply_to, created_at
		FROM room_messages
		WHERE room_id = $1
		  AND (
		    $2::timestamptz IS NULL
		    OR created_at < $2
		    OR (created_at = $2 AND id < $3::uuid)
		  )
		ORDER BY created_at DESC, id DESC
		LIMIT $4`
)

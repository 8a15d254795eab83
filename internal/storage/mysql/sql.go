package mysql

// ---- bookings ----

const insertBookingSQL = `
INSERT INTO bookings
  (id, listing_id, listing_title, customer_name, customer_email, customer_phone,
   tour_date, adults, children, total_guests, notes, status, created_at, updated_at)
VALUES
  (:id, :listing_id, :listing_title, :customer_name, :customer_email, :customer_phone,
   :tour_date, :adults, :children, :total_guests, :notes, :status, :created_at, :updated_at)
`

const getBookingSQL = `
SELECT id, listing_id, listing_title, customer_name, customer_email, customer_phone,
       tour_date, adults, children, total_guests, notes, status, created_at, updated_at
FROM bookings
WHERE id = ?
`

// Unconditional: repeating it leaves the row unchanged apart from updated_at.
const markConfirmedSQL = `
UPDATE bookings SET status = 'confirmed', updated_at = ? WHERE id = ?
`

// ---- reviews ----

// Note: `text` is reserved; keep it quoted everywhere.
const insertReviewSQL = "INSERT INTO reviews (id, listing_id, author_name, rating, `text`, is_approved, created_at)\n" +
	"VALUES (:id, :listing_id, :author_name, :rating, :text, :is_approved, :created_at)"

const reviewColumns = "id, listing_id, author_name, rating, `text`, is_approved, created_at"

const getReviewSQL = "SELECT " + reviewColumns + " FROM reviews WHERE id = ?"

const setApprovedSQL = `UPDATE reviews SET is_approved = ? WHERE id = ?`

const deleteReviewSQL = `DELETE FROM reviews WHERE id = ?`

const listApprovedSQL = "SELECT " + reviewColumns + `
FROM reviews
WHERE listing_id = ? AND is_approved = TRUE
ORDER BY created_at DESC, id DESC`

// Keyset page, newest first; aligns with idx_reviews_listing_approved.
const listApprovedPageSQL = "SELECT " + reviewColumns + `
FROM reviews
WHERE listing_id = ? AND is_approved = TRUE
ORDER BY created_at DESC, id DESC
LIMIT ?`

const listApprovedAfterSQL = "SELECT " + reviewColumns + `
FROM reviews
WHERE listing_id = ? AND is_approved = TRUE
  AND (created_at, id) < (SELECT c.created_at, c.id FROM reviews c WHERE c.id = ?)
ORDER BY created_at DESC, id DESC
LIMIT ?`

// ---- listings ----

const upsertListingSQL = `
INSERT INTO listings (id, title, price_per_guest, currency)
VALUES (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  title           = VALUES(title),
  price_per_guest = VALUES(price_per_guest),
  currency        = VALUES(currency)
`

const getListingSQL = `
SELECT id, title, price_per_guest, currency, average_rating, review_count
FROM listings
WHERE id = ?
`

const lockListingSQL = `SELECT id FROM listings WHERE id = ? FOR UPDATE`

const listListingIDsSQL = `SELECT id FROM listings ORDER BY id`

// Touches only the two aggregate columns.
const updateRatingSQL = `
UPDATE listings SET average_rating = ?, review_count = ? WHERE id = ?
`

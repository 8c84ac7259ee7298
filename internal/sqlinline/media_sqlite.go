package sqlinline

// SQLite variants of the media statements. created_at is stored as unix
// nanoseconds and parameters use explicit ?N numbering.

const SQLiteInsertMedia = `--sql 93ca6f80-a282-41fb-892d-1be07786df40
INSERT INTO media_items(kind, prompt, locator, camera, lens, focal_length, is_favorite, is_proxy, parent_id, created_at)
SELECT ?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10
WHERE ?9 IS NULL
   OR EXISTS (SELECT 1 FROM media_items p WHERE p.id = ?9 AND p.is_proxy = 0)
RETURNING id;
`

const SQLiteSelectMediaByID = `--sql e0d34f62-5a5b-402d-8b39-7a04ba50d0a0
SELECT id, kind, prompt, locator, camera, lens, focal_length, is_favorite, is_proxy, parent_id, created_at
FROM media_items
WHERE id = ?1
LIMIT 1;
`

const SQLiteListHistory = `--sql 77a5ff61-6766-499b-a212-4b24cd58ed99
SELECT id, kind, prompt, locator, camera, lens, focal_length, is_favorite, is_proxy, parent_id, created_at
FROM media_items
WHERE is_proxy = 0
ORDER BY created_at DESC, id DESC
LIMIT ?1;
`

const SQLiteListProxies = `--sql c822c6b0-977b-470e-af5d-dcbc18a9bb8f
SELECT id, kind, prompt, locator, camera, lens, focal_length, is_favorite, is_proxy, parent_id, created_at
FROM media_items
WHERE parent_id = ?1
ORDER BY created_at ASC, id ASC;
`

const SQLiteDeleteMedia = `--sql ce397271-532f-4284-925f-bd10addaa58e
DELETE FROM media_items
WHERE id = ?1;
`

const SQLiteDeleteMediaCascade = `--sql 9e8e7fc4-4937-4d85-bce3-e77ef40e3b0e
DELETE FROM media_items
WHERE (id = ?1 OR parent_id = ?1)
  AND EXISTS (SELECT 1 FROM media_items s WHERE s.id = ?1);
`

const SQLiteSetFavorite = `--sql 17ffdd2d-770d-4dba-b316-74f78064d765
UPDATE media_items
SET is_favorite = ?2
WHERE id = ?1;
`

const SQLiteDuplicateMedia = `--sql f691b9c9-7718-4997-9680-13bd58ab889c
INSERT INTO media_items(kind, prompt, locator, camera, lens, focal_length, is_favorite, is_proxy, parent_id, created_at)
SELECT kind, prompt, locator, camera, lens, focal_length, 0, 0, NULL, ?2
FROM media_items
WHERE id = ?1 AND is_proxy = 0
RETURNING id, kind, prompt, locator, camera, lens, focal_length, is_favorite, is_proxy, parent_id, created_at;
`

const SQLiteInsertUpload = `--sql 0fa72df1-b535-4fc5-aa74-2319be594846
INSERT INTO uploads(payload, created_at)
VALUES (?1, ?2)
RETURNING id;
`

const SQLiteListUploads = `--sql 20a35098-9833-49b8-87c3-1af21d9463b9
SELECT id, payload, created_at
FROM uploads
ORDER BY created_at DESC, id DESC
LIMIT ?1;
`

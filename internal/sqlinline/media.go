package sqlinline

// Postgres statements for the media store. Column order is fixed by
// mediaColumns and shared by every scan in adapter/repo.

const QInsertMedia = `--sql f55e87e4-466f-4b02-b3ee-c0c58ea37a55
insert into media_items(
  kind,
  prompt,
  locator,
  camera,
  lens,
  focal_length,
  is_favorite,
  is_proxy,
  parent_id,
  created_at
)
select $1::text, $2::text, $3::text, $4::text, $5::text, $6::text, $7::boolean, $8::boolean, $9::bigint, $10::timestamptz
where $9::bigint is null
   or exists (select 1 from media_items p where p.id = $9::bigint and not p.is_proxy)
returning id;
`

const QSelectMediaByID = `--sql 1d66aebb-50b7-4f4f-8116-7940426dc31e
select id, kind, prompt, locator, camera, lens, focal_length, is_favorite, is_proxy, parent_id, created_at
from media_items
where id = $1
limit 1;
`

const QListHistory = `--sql 1c60f0f5-09b0-42f5-90eb-07b98919a20d
select id, kind, prompt, locator, camera, lens, focal_length, is_favorite, is_proxy, parent_id, created_at
from media_items
where not is_proxy
order by created_at desc, id desc
limit $1::int;
`

const QListProxies = `--sql 73258cbe-7db9-47f2-a47e-3b31b1548d62
select id, kind, prompt, locator, camera, lens, focal_length, is_favorite, is_proxy, parent_id, created_at
from media_items
where parent_id = $1
order by created_at asc, id asc;
`

const QDeleteMedia = `--sql bf351598-2826-4746-a967-c774826161e9
delete from media_items
where id = $1;
`

const QDeleteMediaCascade = `--sql 452d4b71-2a95-4382-80f2-454256789d74
delete from media_items
where (id = $1 or parent_id = $1)
  and exists (select 1 from media_items s where s.id = $1);
`

const QSetFavorite = `--sql c2e7e7af-892e-4007-8396-ec986a84c15f
update media_items
set is_favorite = $2::boolean
where id = $1;
`

const QDuplicateMedia = `--sql 5bf11293-d9d4-4e70-8076-f0dcb9b84599
insert into media_items(kind, prompt, locator, camera, lens, focal_length, is_favorite, is_proxy, parent_id, created_at)
select kind, prompt, locator, camera, lens, focal_length, false, false, null::bigint, $2::timestamptz
from media_items
where id = $1 and not is_proxy
returning id, kind, prompt, locator, camera, lens, focal_length, is_favorite, is_proxy, parent_id, created_at;
`

const QInsertUpload = `--sql 5a915b44-0c90-4ea6-b0d6-157c1d89fdf2
insert into uploads(payload, created_at)
values ($1, $2)
returning id;
`

const QListUploads = `--sql f8417f8a-37ce-49f6-b5ea-c9bfe2dc47e8
select id, payload, created_at
from uploads
order by created_at desc, id desc
limit $1::int;
`

package sqlinline

const QEnsureSessionSchema = `--sql 06fb7c4c-5b6c-4f6c-9e99-b65fdb159198
create table if not exists sessions (
  id          uuid primary key,
  version     bigint not null,
  created_at  timestamptz not null,
  updated_at  timestamptz not null
);
create table if not exists session_images (
  entry_id     uuid primary key,
  session_id   uuid not null,
  idx          int not null,
  kind         text not null default '',
  storage_key  text not null,
  mime         text not null,
  width        int not null,
  height       int not null,
  bytes        int not null,
  created_at   timestamptz not null
);
create index if not exists session_images_session_idx on session_images(session_id, idx);
`

const QInsertSession = `--sql a55d6355-daea-4709-b537-917cb35e649e
with
ins_session as (
  insert into sessions(id, version, created_at, updated_at)
  values ($1::uuid, $2::bigint, $3::timestamptz, $3::timestamptz)
  returning id
)
insert into session_images(entry_id, session_id, idx, kind, storage_key, mime, width, height, bytes, created_at)
select $4::uuid, s.id, 0, '', $5::text, $6::text, $7::int, $8::int, $9::int, $3::timestamptz
from ins_session s;
`

const QSelectSession = `--sql 04b37232-f670-4c36-951a-d471d7fa0856
select version, created_at, updated_at
from sessions
where id = $1::uuid;
`

const QListSessionImages = `--sql 2505aa5a-433c-46e2-a436-83448113f4cb
select idx, entry_id::text, kind, storage_key, mime, width, height, bytes, created_at
from session_images
where session_id = $1::uuid
order by idx;
`

// QReplaceSessionImages bumps the version only when it still equals $2, drops
// every image at or past index $3 and inserts the new tail. No row comes back
// when the version check fails.
const QReplaceSessionImages = `--sql abefcb83-9e12-4069-82e1-2642d6b71beb
with
bumped as (
  update sessions
  set version = version + 1,
      updated_at = $4::timestamptz
  where id = $1::uuid and version = $2::bigint
  returning id, version, updated_at
),
pruned as (
  delete from session_images si
  using bumped b
  where si.session_id = b.id and si.idx >= $3::int
  returning si.storage_key
),
ins_images as (
  insert into session_images(entry_id, session_id, idx, kind, storage_key, mime, width, height, bytes, created_at)
  select t.entry_id::uuid, b.id, t.idx, t.kind, t.storage_key, t.mime, t.width, t.height, t.bytes, t.created_at
  from bumped b
  cross join unnest(
    $5::text[], $6::int[], $7::text[], $8::text[], $9::text[], $10::int[], $11::int[], $12::int[], $13::timestamptz[]
  ) as t(entry_id, idx, kind, storage_key, mime, width, height, bytes, created_at)
  returning 1
)
select b.version, b.updated_at, coalesce(array(select storage_key from pruned), '{}'::text[])
from bumped b;
`

const QDeleteSession = `--sql 0ffa114a-7b8d-458d-ab8e-aea0ebaece1c
with
gone_images as (
  delete from session_images
  where session_id = $1::uuid
  returning storage_key
),
gone_session as (
  delete from sessions
  where id = $1::uuid
  returning id
)
select
  (select count(*) from gone_session),
  coalesce(array(select storage_key from gone_images), '{}'::text[]);
`
